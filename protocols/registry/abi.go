package registry

// registryABI is the subset of the BRegistry interface the synchronizer uses.
const registryABI = `[
	{
		"type": "function",
		"name": "getBestPools",
		"stateMutability": "view",
		"inputs": [
			{"name": "fromToken", "type": "address"},
			{"name": "destToken", "type": "address"}
		],
		"outputs": [
			{"name": "pools", "type": "address[]"}
		]
	},
	{
		"type": "function",
		"name": "addPoolPair",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "pool", "type": "address"},
			{"name": "token1", "type": "address"},
			{"name": "token2", "type": "address"}
		],
		"outputs": [
			{"name": "listed", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "sortPools",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "tokens", "type": "address[]"},
			{"name": "lengthLimit", "type": "uint256"}
		],
		"outputs": []
	}
]`

const (
	methodGetBestPools = "getBestPools"
	methodAddPoolPair  = "addPoolPair"
	methodSortPools    = "sortPools"
)
