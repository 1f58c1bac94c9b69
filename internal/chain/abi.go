package chain

// marketABI is the subset of the weather market contract this service calls.
// getMarket returns a static tuple, which encodes the same as flat outputs.
const marketABI = `[
	{"name":"getMarketCount","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"getMarket","type":"function","stateMutability":"view","inputs":[{"name":"marketId","type":"uint256"}],"outputs":[
		{"name":"cityHash","type":"bytes32"},
		{"name":"resolveTime","type":"uint256"},
		{"name":"bettingDeadline","type":"uint256"},
		{"name":"threshold","type":"int256"},
		{"name":"currency","type":"uint8"},
		{"name":"status","type":"uint8"},
		{"name":"yesPool","type":"uint256"},
		{"name":"noPool","type":"uint256"},
		{"name":"totalFees","type":"uint256"},
		{"name":"resolvedTemp","type":"int256"},
		{"name":"observedTimestamp","type":"uint256"},
		{"name":"outcome","type":"bool"}
	]},
	{"name":"owner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"settler","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"name":"createMarket","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"cityHash","type":"bytes32"},
		{"name":"resolveTime","type":"uint256"},
		{"name":"threshold","type":"int256"},
		{"name":"currency","type":"uint8"}
	],"outputs":[{"name":"marketId","type":"uint256"}]},
	{"name":"resolveMarket","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"marketId","type":"uint256"},
		{"name":"tempTenths","type":"int256"},
		{"name":"observedTimestamp","type":"uint256"}
	],"outputs":[]},
	{"name":"resolveMarketWithProof","type":"function","stateMutability":"nonpayable","inputs":[
		{"name":"marketId","type":"uint256"},
		{"name":"proof","type":"bytes32[]"},
		{"name":"attestationData","type":"bytes"}
	],"outputs":[]},
	{"name":"cancelMarketBySettler","type":"function","stateMutability":"nonpayable","inputs":[{"name":"marketId","type":"uint256"}],"outputs":[]},
	{"name":"pause","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"name":"unpause","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"name":"MarketCreated","type":"event","anonymous":false,"inputs":[
		{"name":"marketId","type":"uint256","indexed":true},
		{"name":"cityHash","type":"bytes32","indexed":true},
		{"name":"resolveTime","type":"uint256","indexed":false},
		{"name":"threshold","type":"int256","indexed":false},
		{"name":"currency","type":"uint8","indexed":false}
	]}
]`
