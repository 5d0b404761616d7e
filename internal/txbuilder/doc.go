// Package txbuilder prices, builds, signs and broadcasts AirnodeRrp
// transactions for sponsor wallets.
//
// Usage example (not compiled):
//
//	oracle, _ := txbuilder.NewGasOracleFromConfig(client, cfg, chain)
//	target, pending := oracle.Resolve(ctx) // nil target: submit nothing this cycle
//
//	sender, _ := txbuilder.NewSenderFromConfig(client, keyManager, cfg, chain)
//	hash, err := sender.Fulfill(ctx, sponsorWallet, call, txbuilder.BuildParams{
//		Nonce: 79, GasLimit: sender.ApiCallGasLimit(), Gas: *target,
//	})
package txbuilder
