package model

// Contact is a CRM person record. The CRM owns it; we hold the numeric ID and
// create a new person on demand when an inbound number has no match.
type Contact struct {
	ID     int64   `json:"id"`
	Name   string  `json:"name"`
	Phones []Phone `json:"phone"`
}

// Phone is one entry in a contact's phone list.
type Phone struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary"`
}

// PrimaryPhone returns the entry flagged primary, falling back to the first
// entry when none is flagged.
func (c *Contact) PrimaryPhone() (Phone, bool) {
	if c == nil || len(c.Phones) == 0 {
		return Phone{}, false
	}
	for _, p := range c.Phones {
		if p.Primary {
			return p, true
		}
	}
	return c.Phones[0], true
}

// Deal is a CRM deal record. At most one open deal per contact is tracked
// here (the first open deal per the CRM's default ordering).
type Deal struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	PersonID int64  `json:"person_id"`
	Status   string `json:"status"`
}

// Note is a CRM annotation. Most notes are append-only message logs; the
// note-command webhook additionally consumes a note as a send instruction and
// rewrites its content afterwards.
type Note struct {
	ID       int64  `json:"id"`
	Content  string `json:"content"`
	PersonID int64  `json:"person_id"`
	DealID   int64  `json:"deal_id"`
}
