package conditionals

// Evaluate checks whether the predicate holds against the view.
// A nil predicate always holds. Unknown kinds never hold.
func Evaluate(p *Predicate, view StateView) bool {
	if p == nil {
		return true
	}
	return evaluate(*p, view)
}

func evaluate(p Predicate, view StateView) bool {
	switch p.Kind {
	case KindTrust:
		trust := view.TrustOf(resolveCharacter(p.CharacterID, view))
		if p.Min != nil && trust < *p.Min {
			return false
		}
		if p.Max != nil && trust > *p.Max {
			return false
		}
		return p.Min != nil || p.Max != nil

	case KindPattern:
		if p.Min == nil {
			return false
		}
		return view.PatternScore(p.Pattern) >= *p.Min

	case KindFlag:
		return hasFlag(p, view)

	case KindNotFlag:
		return !hasFlag(p, view)

	case KindVisited:
		return p.Node != "" && hasVisited(p, view)

	case KindNotVisited:
		return p.Node != "" && !hasVisited(p, view)

	case KindAll:
		// Conjunctive: every child must hold. An empty conjunction holds.
		for _, child := range p.All {
			if !evaluate(child, view) {
				return false
			}
		}
		return true

	default:
		return false
	}
}

func hasFlag(p Predicate, view StateView) bool {
	if p.CharacterID == "" {
		return view.HasGlobalFlag(p.Flag)
	}
	return view.HasKnowledgeFlag(resolveCharacter(p.CharacterID, view), p.Flag)
}

func hasVisited(p Predicate, view StateView) bool {
	if p.CharacterID == "" {
		return view.HasVisited("", p.Node)
	}
	return view.HasVisited(resolveCharacter(p.CharacterID, view), p.Node)
}

func resolveCharacter(id string, view StateView) string {
	if id == "" || id == CurrentCharacter {
		return view.CurrentCharacter()
	}
	return id
}
