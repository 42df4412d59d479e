package domain

// SeatInBounds reports whether the seat coordinate falls inside the hall's
// grid, which spans [1..Rows] x [1..Columns].
func SeatInBounds(hall *Hall, row, column int) bool {
	if row < 1 || row > hall.Rows {
		return false
	}

	return column >= 1 && column <= hall.Columns
}

// SeatFree reports whether no reservation holds the seat on the given
// showtime. This is a fast reject over already-loaded state; the storage
// layer's uniqueness constraint remains the authority at write time.
func SeatFree(showtime *Showtime, row, column int) bool {
	for _, reservation := range showtime.Reservations {
		if reservation.Row == row && reservation.Column == column {
			return false
		}
	}

	return true
}
