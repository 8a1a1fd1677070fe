package model

type recipientKind int

const (
	recipientPrincipals recipientKind = iota + 1
	recipientOperators
	recipientBroadcast
)

// RecipientSet describes who a notification goes to.
// Build one with OnePrincipal, Principals, Operators or Broadcast.
type RecipientSet struct {
	kind recipientKind
	ids  []int64
}

// OnePrincipal addresses a single known principal.
func OnePrincipal(id int64) RecipientSet {
	return RecipientSet{kind: recipientPrincipals, ids: []int64{id}}
}

// Principals addresses an explicit list of principals. Duplicates are dropped.
func Principals(ids ...int64) RecipientSet {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return RecipientSet{kind: recipientPrincipals, ids: out}
}

// Operators addresses every operator: one operator-wide alert record,
// a realtime broadcast and a push to operator devices.
func Operators() RecipientSet {
	return RecipientSet{kind: recipientOperators}
}

// Broadcast addresses all active end-users plus all anonymous device targets.
func Broadcast() RecipientSet {
	return RecipientSet{kind: recipientBroadcast}
}

// IDs returns the explicit principal ids, if any.
func (r RecipientSet) IDs() []int64 {
	return r.ids
}

func (r RecipientSet) IsPrincipals() bool { return r.kind == recipientPrincipals }
func (r RecipientSet) IsOperators() bool  { return r.kind == recipientOperators }
func (r RecipientSet) IsBroadcast() bool  { return r.kind == recipientBroadcast }

// Valid reports whether the set was built by one of the constructors and is non-empty.
func (r RecipientSet) Valid() bool {
	switch r.kind {
	case recipientPrincipals:
		return len(r.ids) > 0
	case recipientOperators, recipientBroadcast:
		return true
	}
	return false
}

func (r RecipientSet) String() string {
	switch r.kind {
	case recipientPrincipals:
		return "principals"
	case recipientOperators:
		return "operators"
	case recipientBroadcast:
		return "broadcast"
	}
	return "invalid"
}

// Notification is one logical message to fan out.
type Notification struct {
	Recipients RecipientSet
	Category   Category
	Title      string
	Body       string
	Payload    Payload

	// WaitForDelivery runs push inline so the result carries real push counts.
	// Push failures still never fail the call.
	WaitForDelivery bool
}

// DispatchResult reports what a dispatch did.
// Push counts are only populated when the push ran inline.
type DispatchResult struct {
	RecordsWritten int  `json:"records_written"`
	PushSucceeded  int  `json:"sent"`
	PushFailed     int  `json:"failed"`
	InvalidPruned  int  `json:"invalid_pruned"`
	PushQueued     bool `json:"push_queued"`
}
