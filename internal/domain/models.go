package domain

// Models lists every table for schema migration, parents first.
func Models() []any {
	return []any{
		&Partner{},
		&Currency{},
		&SeatType{},
		&ProgramType{},
		&Organization{},
		&Video{},
		&Course{},
		&CourseRun{},
		&Chapter{},
		&Sequential{},
		&Objective{},
		&Seat{},
		&CourseEntitlement{},
		&Program{},
	}
}
