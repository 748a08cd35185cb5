package domain

import "time"

type Member struct {
	ID      string
	Name    string
	NIK     string
	Address *string
	Phone   *string

	JoinDate time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
