package greeting

import "time"

type monthDay struct {
	month time.Month
	day   int
}

var fixedHolidays = map[monthDay]Category{
	{time.January, 1}:   Capodanno,
	{time.January, 6}:   Epifania,
	{time.February, 14}: SanValentino,
	{time.March, 8}:     FestaDellaDonna,
	{time.April, 25}:    Liberazione,
	{time.May, 1}:       FestaDelLavoro,
	{time.June, 2}:      FestaDellaRepubblica,
	{time.August, 15}:   Ferragosto,
	{time.October, 31}:  Halloween,
	{time.November, 1}:  Ognissanti,
	{time.November, 2}:  Defunti,
	{time.December, 8}:  Immacolata,
	{time.December, 24}: VigiliaDiNatale,
	{time.December, 25}: Natale,
	{time.December, 26}: SantoStefano,
	{time.December, 31}: SanSilvestro,
}

// OfTheDay returns the morning greeting for the given date. Holidays win over
// the generic greeting; otherwise useWeekday selects the weekday variant.
func OfTheDay(date time.Time, useWeekday bool) Category {
	if c, ok := Holiday(date); ok {
		return c
	}
	if useWeekday {
		return BuonGiornoWeekday
	}
	return BuonGiorno
}

// Holiday looks up the calendar greeting for date, if any. Easter and Easter
// Monday take precedence over fixed dates they may collide with.
func Holiday(date time.Time) (Category, bool) {
	year, month, day := date.Date()
	easter := Easter(year)
	switch {
	case month == easter.Month() && day == easter.Day():
		return Pasqua, true
	case sameDay(date, easter.AddDate(0, 0, 1)):
		return Pasquetta, true
	}
	c, ok := fixedHolidays[monthDay{month, day}]
	return c, ok
}

// Easter computes Easter Sunday of the Gregorian calendar for year, in UTC.
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// SameMonthDay reports whether a and b fall on the same month and day,
// ignoring the year. A 29 February date matches 28 February in common years.
func SameMonthDay(a, b time.Time) bool {
	am, ad := a.Month(), a.Day()
	bm, bd := b.Month(), b.Day()
	if am == time.February && ad == 29 && !isLeap(b.Year()) {
		ad = 28
	}
	return am == bm && ad == bd
}

// WeekdayName returns the Italian, accent-free weekday name used in page slugs.
func WeekdayName(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "lunedi"
	case time.Tuesday:
		return "martedi"
	case time.Wednesday:
		return "mercoledi"
	case time.Thursday:
		return "giovedi"
	case time.Friday:
		return "venerdi"
	case time.Saturday:
		return "sabato"
	default:
		return "domenica"
	}
}

func sameDay(a, b time.Time) bool {
	return a.Month() == b.Month() && a.Day() == b.Day()
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
