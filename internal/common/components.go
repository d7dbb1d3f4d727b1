package common

const (
	ComponentClient       = "client"
	ComponentBlockFetcher = "block-fetcher"
	ComponentTxBuilder    = "tx-builder"
	ComponentMetrics      = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentClient:       {},
	ComponentBlockFetcher: {},
	ComponentTxBuilder:    {},
	ComponentMetrics:      {},
}
