package router

import "sort"

// Directory maps local usernames to the sessions currently signed in as
// them. A user may hold several sessions; a session belongs to one user.
type Directory struct {
	users  map[string][]Session
	owners map[Session]string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		users:  make(map[string][]Session),
		owners: make(map[Session]string),
	}
}

// Add signs s in as name. A session already signed in under another name
// is moved.
func (d *Directory) Add(name string, s Session) {
	if prev, ok := d.owners[s]; ok {
		if prev == name {
			return
		}
		d.Remove(s)
	}
	d.users[name] = append(d.users[name], s)
	d.owners[s] = name
}

// Remove drops s from whichever user it is signed in as and reports the
// user name.
func (d *Directory) Remove(s Session) (string, bool) {
	name, ok := d.owners[s]
	if !ok {
		return "", false
	}
	delete(d.owners, s)

	sessions := d.users[name]
	for i, candidate := range sessions {
		if candidate == s {
			sessions = append(sessions[:i:i], sessions[i+1:]...)
			break
		}
	}
	if len(sessions) == 0 {
		delete(d.users, name)
	} else {
		d.users[name] = sessions
	}
	return name, true
}

// Sessions returns a copy of the sessions signed in as name.
func (d *Directory) Sessions(name string) []Session {
	return append([]Session(nil), d.users[name]...)
}

// Online reports whether name has at least one session.
func (d *Directory) Online(name string) bool {
	return len(d.users[name]) > 0
}

// Owner returns the user s is signed in as.
func (d *Directory) Owner(s Session) (string, bool) {
	name, ok := d.owners[s]
	return name, ok
}

// Users returns the signed-in usernames, sorted.
func (d *Directory) Users() []string {
	names := make([]string, 0, len(d.users))
	for name := range d.users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of signed-in sessions.
func (d *Directory) Len() int {
	return len(d.owners)
}
