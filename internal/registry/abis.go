package registry

// Multicall3 is deployed at the same address on every supported EVM chain.
const Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

const Multicall3ABI = `[
	{"name":"aggregate3","type":"function","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"allowFailure","type":"bool"},{"name":"callData","type":"bytes"}]}],"outputs":[{"name":"returnData","type":"tuple[]","components":[{"name":"success","type":"bool"},{"name":"returnData","type":"bytes"}]}]},
	{"name":"getBlockNumber","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"blockNumber","type":"uint256"}]}
]`
