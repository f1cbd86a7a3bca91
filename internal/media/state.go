package media

// State is the name of a position in the item lifecycle.
type State string

const (
	StateUnknown            State = "Unknown"
	StateRequested          State = "Requested"
	StateIndexed            State = "Indexed"
	StateScraped            State = "Scraped"
	StateDownloaded         State = "Downloaded"
	StateSymlinked          State = "Symlinked"
	StateCompleted          State = "Completed"
	StatePartiallyCompleted State = "PartiallyCompleted"
	StateFailed             State = "Failed"
)

// State derives the item's current state from its fields. Movies and
// episodes derive directly; shows and seasons aggregate over children.
func (i *Item) State() State {
	switch i.Type {
	case TypeShow:
		return i.aggregateState(i.Seasons)
	case TypeSeason:
		return i.aggregateState(i.Episodes)
	default:
		return i.leafState()
	}
}

func (i *Item) leafState() State {
	switch {
	case i.Key != "" || i.UpdateFolder == "updated":
		return StateCompleted
	case i.Symlinked:
		return StateSymlinked
	case i.File != "" && i.Folder != "":
		return StateDownloaded
	case i.IsScraped():
		return StateScraped
	case i.Title != "":
		return StateIndexed
	case i.IMDbID != "" && i.RequestedBy != "":
		return StateRequested
	default:
		return StateUnknown
	}
}

func (i *Item) aggregateState(children []*Item) State {
	if len(children) == 0 {
		return i.leafState()
	}

	all := func(want State) bool {
		for _, c := range children {
			if c.State() != want {
				return false
			}
		}
		return true
	}

	if all(StateCompleted) {
		return StateCompleted
	}
	for _, c := range children {
		switch c.State() {
		case StateCompleted, StatePartiallyCompleted:
			return StatePartiallyCompleted
		}
	}
	if all(StateSymlinked) {
		return StateSymlinked
	}
	if all(StateDownloaded) {
		return StateDownloaded
	}
	if i.IsScraped() {
		return StateScraped
	}
	for _, c := range children {
		if c.State() == StateIndexed {
			return StateIndexed
		}
	}
	for _, c := range children {
		if c.State() == StateRequested {
			return StateRequested
		}
	}
	return StateUnknown
}

// RefreshState recomputes and caches last_state over the whole tree,
// children first. Returns the item's new state.
func (i *Item) RefreshState() State {
	for _, s := range i.Seasons {
		s.RefreshState()
	}
	for _, e := range i.Episodes {
		e.RefreshState()
	}
	i.LastState = i.State()
	return i.LastState
}

// Incomplete reports whether the state still needs pipeline work.
func (s State) Incomplete() bool {
	return s != StateCompleted
}
