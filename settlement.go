package x402

// BuildSettlementRequest maps a validated payload onto the facilitator's
// settle request, nesting the signature inside the authorization.
func BuildSettlementRequest(p PaymentPayload, cfg *PaymentConfig) SettlementRequest {
	return BuildSettlementRequestFromParts(p.Authorization(), p.Signature(), cfg)
}

// BuildSettlementRequestFromParts is BuildSettlementRequest for callers that
// hold the authorization and the signature separately.
func BuildSettlementRequestFromParts(auth Authorization, sig Signature, cfg *PaymentConfig) SettlementRequest {
	return SettlementRequest{
		Authorization: SettlementAuthorization{
			From:        auth.From,
			To:          auth.To,
			Value:       canonical(auth.Value),
			ValidAfter:  canonical(auth.ValidAfter),
			ValidBefore: canonical(auth.ValidBefore),
			Nonce:       auth.Nonce,
			V:           sig.V,
			R:           sig.R,
			S:           sig.S,
		},
		ChainID:      cfg.ChainID,
		TokenAddress: cfg.TokenAddress,
	}
}

// canonical strips leading zeros from integer values and leaves anything
// unparseable untouched.
func canonical(u Uint) Uint {
	n, ok := u.Int()
	if !ok {
		return u
	}
	return NewUint(n)
}
