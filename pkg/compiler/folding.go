package compiler

// asNumber/asString extract a constant payload from e, used by the folding
// rules below (spec.md §4.6 "Constant folding rules").
func asNumber(e *expr) (float64, bool) {
	if e.kind == kindNumber {
		return e.numVal, true
	}
	return 0, false
}

func asString(e *expr) (string, bool) {
	if e.kind == kindString {
		return e.strVal, true
	}
	return "", false
}

func isNilOrBoolConst(e *expr) bool {
	return e.isConst() && (e.kind == kindNil || e.kind == kindBool)
}

// constEqual implements `==`/`!=` folding across any two constant kinds:
// equal only when both are the same kind and carry equal payloads.
func constEqual(lhs, rhs *expr) bool {
	if lhs.kind != rhs.kind {
		return false
	}
	switch lhs.kind {
	case kindNil:
		return true
	case kindBool:
		return lhs.boolVal == rhs.boolVal
	case kindNumber:
		return lhs.numVal == rhs.numVal
	case kindString:
		return lhs.strVal == rhs.strVal
	default:
		return false
	}
}

// constOrder implements `<`/`<=`/`>`/`>=` folding: nil orders below every
// other constant, false below true, numbers and strings in their natural
// order. ok is false when the two constants have no defined order (mixed
// non-nil kinds).
func constOrder(lhs, rhs *expr) (cmp int, ok bool) {
	if lhs.kind == kindNil && rhs.kind == kindNil {
		return 0, true
	}
	if lhs.kind == kindNil {
		return -1, true
	}
	if rhs.kind == kindNil {
		return 1, true
	}
	if lhs.kind != rhs.kind {
		return 0, false
	}
	switch lhs.kind {
	case kindBool:
		return boolCmp(lhs.boolVal, rhs.boolVal), true
	case kindNumber:
		switch {
		case lhs.numVal < rhs.numVal:
			return -1, true
		case lhs.numVal > rhs.numVal:
			return 1, true
		default:
			return 0, true
		}
	case kindString:
		switch {
		case lhs.strVal < rhs.strVal:
			return -1, true
		case lhs.strVal > rhs.strVal:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func boolCmp(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
