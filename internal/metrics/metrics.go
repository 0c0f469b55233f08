package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stoneage",
		Name:      "chain_height",
		Help:      "Height of the active chain tip.",
	})

	PixelsOwned = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stoneage",
		Name:      "pixels_owned",
		Help:      "Number of pixels on the active chain grid.",
	})

	BlocksConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "blocks_confirmed_total",
		Help:      "Total blocks applied to the active chain.",
	})

	BlocksUnconfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "blocks_unconfirmed_total",
		Help:      "Total blocks rolled off the active chain.",
	})

	SideBranchBlocks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "side_branch_blocks_total",
		Help:      "Total blocks accepted without becoming the best chain.",
	})

	Reorgs = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "reorgs_total",
		Help:      "Total active-chain reorganizations.",
	})

	MinerHashes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "miner_hashes_total",
		Help:      "Total nonce attempts by the local miner.",
	})

	BlocksMined = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stoneage",
		Name:      "blocks_mined_total",
		Help:      "Total blocks found by the local miner.",
	})
)

func init() {
	prometheus.MustRegister(
		ChainHeight,
		PixelsOwned,
		BlocksConfirmed,
		BlocksUnconfirmed,
		SideBranchBlocks,
		Reorgs,
		MinerHashes,
		BlocksMined,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
