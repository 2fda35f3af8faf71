package chain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chain_rpc_attempts_total",
	Help: "Transaction lookups per RPC endpoint by outcome.",
}, []string{"endpoint", "outcome"})
