package chainadapter

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// feeManagerABI covers exactly the fee-manager surface this adapter calls
// (spec §6). Generated contract bindings are out of scope; this runtime
// ABI plus go-ethereum's bind.BoundContract is the library-level
// equivalent without shipping abigen output.
const feeManagerABI = `[
	{"type":"function","name":"durationCheck","stateMutability":"view","inputs":[],"outputs":[{"type":"uint8"}]},
	{"type":"function","name":"submissions","stateMutability":"view","inputs":[],"outputs":[
		{"type":"uint64","name":"startBlock"},
		{"type":"uint64","name":"endBlock"},
		{"type":"uint64","name":"submitTimestamp"},
		{"type":"bytes32","name":"profitRoot"},
		{"type":"bytes32","name":"blocksRoot"}
	]},
	{"type":"function","name":"getDealerInfo","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint64","name":"feeRatio"}]},
	{"type":"function","name":"submit","stateMutability":"nonpayable","inputs":[
		{"type":"uint64","name":"start"},
		{"type":"uint64","name":"end"},
		{"type":"bytes32","name":"profitRoot"},
		{"type":"bytes32","name":"blocksRoot"}
	],"outputs":[]},
	{"type":"event","name":"ETHDeposit","anonymous":false,"inputs":[
		{"type":"address","name":"user","indexed":false},
		{"type":"uint256","name":"amount","indexed":false}
	]},
	{"type":"event","name":"Withdraw","anonymous":false,"inputs":[
		{"type":"address","name":"user","indexed":false},
		{"type":"uint64","name":"chainId","indexed":false},
		{"type":"address","name":"token","indexed":false},
		{"type":"uint256","name":"amount","indexed":false},
		{"type":"uint256","name":"reserved","indexed":false}
	]}
]`

func mustParseABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(feeManagerABI))
	if err != nil {
		panic("chainadapter: bad embedded abi: " + err.Error())
	}
	return parsed
}
