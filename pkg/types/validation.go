package types

import "regexp"

// Compiled once at package initialization; validation runs on every
// signup and every inbound command.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate ensures a user is storable: bounded name, plausible email,
// known role. Password length is checked before hashing, not here,
// because the struct carries the hash.
func (u *User) Validate() error {
	if len(u.Name) < 1 || len(u.Name) > 100 {
		return ErrInvalidUserName
	}
	if !IsValidEmail(u.Email) {
		return ErrInvalidEmail
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}

// Validate ensures a class has a bounded name.
func (c *Class) Validate() error {
	if len(c.Name) < 1 || len(c.Name) > 200 {
		return ErrInvalidClassName
	}
	return nil
}

// IsValidRole checks the role against the closed set.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleTeacher
}

// IsValidStatus checks a mark status against the closed set. The
// "not yet updated" placeholder is a reply value, never a valid mark.
func IsValidStatus(status string) bool {
	return status == StatusPresent || status == StatusAbsent
}

// IsValidEvent checks an inbound event name against the closed set of
// commands. ERROR is outbound-only and is not accepted here.
func IsValidEvent(event string) bool {
	switch event {
	case EventAttendanceMarked, EventTodaySummary, EventDone, EventMyAttendance:
		return true
	default:
		return false
	}
}

// IsValidEmail checks the minimal shape of an email address.
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
