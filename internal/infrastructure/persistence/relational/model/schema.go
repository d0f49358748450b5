package model

// All lists every table in migration order.
func All() []any {
	return []any{
		&Update{},
		&Owner{},
		&URL{},
		&CommunicationType{},
		&PublicationPoint{},
		&ErrorMessage{},
		&RelyingParty{},
		&VRP{},
		&Unreachability{},
		&Inconsistency{},
		&ObjectError{},
		&PublicationPointURL{},
		&PublicationPointCommunicationType{},
		&UnreachabilityErrorMessage{},
		&InconsistencyRelyingParty{},
		&InconsistencyVRP{},
		&ObjectErrorVRP{},
		&KV{},
	}
}
