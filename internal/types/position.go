package types

import "fmt"

// Position is an integer grid coordinate. It identifies a pixel in the world
// and serves as the coinbase location of the transaction that mined it.
type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

// Neighbors returns the 4-neighborhood of the position (up, down, left, right).
func (p Position) Neighbors() [4]Position {
	return [4]Position{
		{X: p.X, Y: p.Y + 1},
		{X: p.X, Y: p.Y - 1},
		{X: p.X - 1, Y: p.Y},
		{X: p.X + 1, Y: p.Y},
	}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}
