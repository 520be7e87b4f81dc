package position

import (
	"errors"
	"fmt"
)

var ErrIllegalMove = errors.New("illegal move")

// IllegalMoveError reports a move that is not legal in the position it was
// played in.
type IllegalMoveError struct {
	Move string
	FEN  string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s in %s", e.Move, e.FEN)
}

func (e *IllegalMoveError) Is(target error) bool { return target == ErrIllegalMove }
