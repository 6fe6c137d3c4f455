package controllers

type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

var (
	ErrInvalidTableNumber = &CustomError{"table number must be between 1 and 99"}
	ErrTableConflict      = &CustomError{"table is already open or does not exist"}
	ErrTableNotOpen       = &CustomError{"table is not open"}
	ErrTableExists        = &CustomError{"table already exists"}
)
