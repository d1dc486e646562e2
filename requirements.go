package x402

// BuildPaymentRequired builds the body of an HTTP 402 challenge for a resource.
// An empty description falls back to the configured one.
func BuildPaymentRequired(cfg *PaymentConfig, resource, description string) PaymentRequiredResponse {
	if description == "" {
		description = cfg.Description
	}
	maxTimeout := int(cfg.MaxAuthorizationAge.Seconds())

	requirement := PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           cfg.Network(),
		MaxAmountRequired: cfg.Amount,
		Resource:          resource,
		Description:       description,
		MimeType:          DefaultMimeType,
		PayTo:             cfg.PayTo,
		MaxTimeoutSeconds: maxTimeout,
		Asset: AssetInfo{
			Address:  cfg.TokenAddress,
			Name:     cfg.TokenName,
			Decimals: cfg.TokenDecimals,
			Symbol:   AssetSymbol,
		},
		EIP712Domain: cfg.Domain(),
	}

	return PaymentRequiredResponse{
		X402Version:       ProtocolVersion,
		Accepts:           []PaymentRequirement{requirement},
		Amount:            cfg.Amount,
		Currency:          AssetSymbol,
		PayTo:             cfg.PayTo,
		ChainID:           cfg.ChainID,
		TokenAddress:      cfg.TokenAddress,
		Description:       description,
		Resource:          resource,
		MaxTimeoutSeconds: maxTimeout,
	}
}
