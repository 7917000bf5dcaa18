package core

// UndoKind tags the inverse of each executed Coeus operation. Grounded on
// original_source/coeus-core/src/operations/mod.rs's UndoOperation enum.
type UndoKind int

const (
	UndoKindStartBlock UndoKind = iota
	UndoKindRegister
	UndoKindUpdate
	UndoKindRenew
	UndoKindTransfer
	UndoKindDelete
)

// UndoEntry carries exactly the information needed to reverse one executed
// Command. Grounded on original_source/coeus-core/src/operations/register.rs's
// UndoRegister (name + previous-domain-or-none) and spec.md §3's UndoEntry
// description; the sibling update/renew/transfer/delete/start_block undo
// shapes were not present in the retrieved source tree, so they are
// designed by the same pattern (capture exactly the prior field value).
type UndoEntry struct {
	kind UndoKind

	name DomainName

	previousHeight BlockHeight // UndoStartBlock

	previousDomain *Domain // UndoRegister: nil if name was previously unoccupied

	previousData interface{} // UndoUpdate

	previousExpiresAtHeight BlockHeight // UndoRenew

	previousOwner Principal // UndoTransfer

	removedDomain *Domain // UndoDelete
}

func undoStartBlock(previousHeight BlockHeight) UndoEntry {
	return UndoEntry{kind: UndoKindStartBlock, previousHeight: previousHeight}
}

func undoRegister(name DomainName, previousDomain *Domain) UndoEntry {
	return UndoEntry{kind: UndoKindRegister, name: name, previousDomain: previousDomain}
}

func undoUpdate(name DomainName, previousData interface{}) UndoEntry {
	return UndoEntry{kind: UndoKindUpdate, name: name, previousData: previousData}
}

func undoRenew(name DomainName, previousExpiresAtHeight BlockHeight) UndoEntry {
	return UndoEntry{kind: UndoKindRenew, name: name, previousExpiresAtHeight: previousExpiresAtHeight}
}

func undoTransfer(name DomainName, previousOwner Principal) UndoEntry {
	return UndoEntry{kind: UndoKindTransfer, name: name, previousOwner: previousOwner}
}

func undoDelete(name DomainName, removedDomain *Domain) UndoEntry {
	return UndoEntry{kind: UndoKindDelete, name: name, removedDomain: removedDomain}
}

// Execute reverses the effect of the Command that produced e. Grounded on
// original_source/coeus-core/src/operations/register.rs's UndoCommand impl
// for UndoRegister (insert_or_replace_child the old domain back, or
// remove_child if there was none).
func (e UndoEntry) Execute(s *CoeusState) error {
	switch e.kind {
	case UndoKindStartBlock:
		s.lastSeenHeight = e.previousHeight
		return nil

	case UndoKindRegister:
		parentName, ok := e.name.Parent()
		if !ok {
			return malformedf("cannot undo registering the root domain")
		}
		parent, err := s.domainMut(parentName)
		if err != nil {
			return err
		}
		if e.previousDomain != nil {
			if _, err := parent.InsertOrReplaceChild(e.previousDomain); err != nil {
				return err
			}
		} else {
			edge, _ := e.name.LastEdge()
			if _, err := parent.RemoveChild(edge); err != nil {
				return err
			}
		}
		return nil

	case UndoKindUpdate:
		domain, err := s.domainMut(e.name)
		if err != nil {
			return err
		}
		domain.SetData(e.previousData)
		return nil

	case UndoKindRenew:
		domain, err := s.domainMut(e.name)
		if err != nil {
			return err
		}
		domain.SetExpiresAtHeight(e.previousExpiresAtHeight)
		return nil

	case UndoKindTransfer:
		domain, err := s.domainMut(e.name)
		if err != nil {
			return err
		}
		domain.SetOwner(e.previousOwner)
		return nil

	case UndoKindDelete:
		parentName, ok := e.name.Parent()
		if !ok {
			return malformedf("cannot undo deleting the root domain")
		}
		parent, err := s.domainMut(parentName)
		if err != nil {
			return err
		}
		if _, err := parent.InsertOrReplaceChild(e.removedDomain); err != nil {
			return err
		}
		return nil

	default:
		return malformedf("unknown undo entry kind")
	}
}
