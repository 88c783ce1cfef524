package chain

// Minimal ABI fragments for the handful of Aave v3 / Chainlink methods the
// core core actually calls. Full protocol ABIs are deployment artifacts that
// belong to the operator's config, not this repo; these fragments are enough
// to Pack/Unpack every call site in this package.

const poolABI = `[
  {"name":"getUserAccountData","type":"function","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[
     {"name":"totalCollateralBase","type":"uint256"},
     {"name":"totalDebtBase","type":"uint256"},
     {"name":"availableBorrowsBase","type":"uint256"},
     {"name":"currentLiquidationThreshold","type":"uint256"},
     {"name":"ltv","type":"uint256"},
     {"name":"healthFactor","type":"uint256"}
   ]},
  {"name":"getReserveData","type":"function","stateMutability":"view",
   "inputs":[{"name":"asset","type":"address"}],
   "outputs":[
     {"name":"configuration","type":"uint256"},
     {"name":"liquidityIndex","type":"uint128"},
     {"name":"currentLiquidityRate","type":"uint128"},
     {"name":"variableBorrowIndex","type":"uint128"},
     {"name":"currentVariableBorrowRate","type":"uint128"},
     {"name":"currentStableBorrowRate","type":"uint128"},
     {"name":"lastUpdateTimestamp","type":"uint40"},
     {"name":"id","type":"uint16"},
     {"name":"aTokenAddress","type":"address"},
     {"name":"stableDebtTokenAddress","type":"address"},
     {"name":"variableDebtTokenAddress","type":"address"},
     {"name":"interestRateStrategyAddress","type":"address"},
     {"name":"accruedToTreasury","type":"uint128"},
     {"name":"unbacked","type":"uint128"},
     {"name":"isolationModeTotalDebt","type":"uint128"}
   ]},
  {"name":"getReservesList","type":"function","stateMutability":"view",
   "inputs":[], "outputs":[{"name":"","type":"address[]"}]},
  {"name":"getUserConfiguration","type":"function","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"data","type":"uint256"}]},
  {"name":"liquidationCall","type":"function","stateMutability":"nonpayable",
   "inputs":[
     {"name":"collateralAsset","type":"address"},
     {"name":"debtAsset","type":"address"},
     {"name":"user","type":"address"},
     {"name":"debtToCover","type":"uint256"},
     {"name":"receiveAToken","type":"bool"}
   ],
   "outputs":[]},
  {"name":"Supply","type":"event","anonymous":false,"inputs":[
     {"name":"reserve","type":"address","indexed":true},
     {"name":"user","type":"address","indexed":false},
     {"name":"onBehalfOf","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"referralCode","type":"uint16","indexed":true}
   ]},
  {"name":"Withdraw","type":"event","anonymous":false,"inputs":[
     {"name":"reserve","type":"address","indexed":true},
     {"name":"user","type":"address","indexed":true},
     {"name":"to","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false}
   ]},
  {"name":"Borrow","type":"event","anonymous":false,"inputs":[
     {"name":"reserve","type":"address","indexed":true},
     {"name":"user","type":"address","indexed":false},
     {"name":"onBehalfOf","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"interestRateMode","type":"uint8","indexed":false},
     {"name":"borrowRate","type":"uint256","indexed":false},
     {"name":"referralCode","type":"uint16","indexed":true}
   ]},
  {"name":"Repay","type":"event","anonymous":false,"inputs":[
     {"name":"reserve","type":"address","indexed":true},
     {"name":"user","type":"address","indexed":true},
     {"name":"repayer","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"useATokens","type":"bool","indexed":false}
   ]},
  {"name":"LiquidationCall","type":"event","anonymous":false,"inputs":[
     {"name":"collateralAsset","type":"address","indexed":true},
     {"name":"debtAsset","type":"address","indexed":true},
     {"name":"user","type":"address","indexed":true},
     {"name":"debtToCover","type":"uint256","indexed":false},
     {"name":"liquidatedCollateralAmount","type":"uint256","indexed":false},
     {"name":"liquidator","type":"address","indexed":false},
     {"name":"receiveAToken","type":"bool","indexed":false}
   ]},
  {"name":"ReserveDataUpdated","type":"event","anonymous":false,"inputs":[
     {"name":"reserve","type":"address","indexed":true},
     {"name":"liquidityRate","type":"uint256","indexed":false},
     {"name":"stableBorrowRate","type":"uint256","indexed":false},
     {"name":"variableBorrowRate","type":"uint256","indexed":false},
     {"name":"liquidityIndex","type":"uint256","indexed":false},
     {"name":"variableBorrowIndex","type":"uint256","indexed":false}
   ]}
]`

const aggregatorABI = `[
  {"name":"latestRoundData","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[
     {"name":"roundId","type":"uint80"},
     {"name":"answer","type":"int256"},
     {"name":"startedAt","type":"uint256"},
     {"name":"updatedAt","type":"uint256"},
     {"name":"answeredInRound","type":"uint80"}
   ]},
  {"name":"decimals","type":"function","stateMutability":"view",
   "inputs":[], "outputs":[{"name":"","type":"uint8"}]},
  {"name":"description","type":"function","stateMutability":"view",
   "inputs":[], "outputs":[{"name":"","type":"string"}]}
]`

const erc20ABI = `[
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"decimals","type":"function","stateMutability":"view",
   "inputs":[], "outputs":[{"name":"","type":"uint8"}]},
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// poolEventSignatureStrings names the canonical event signatures whose topic0
// hashes the ingestor subscribes to, matching spec.md §4.4's enumerated
// events. The hashes themselves are computed once at package initialization
// (source.go's topicHashes) via crypto.Keccak256Hash.
var poolEventSignatureStrings = map[string]string{
	"Borrow":             "Borrow(address,address,address,uint256,uint8,uint256,uint16)",
	"Repay":              "Repay(address,address,address,uint256,bool)",
	"Supply":             "Supply(address,address,address,uint256,uint16)",
	"Withdraw":           "Withdraw(address,address,address,uint256)",
	"LiquidationCall":    "LiquidationCall(address,address,address,uint256,uint256,address,bool)",
	"ReserveDataUpdated": "ReserveDataUpdated(address,uint256,uint256,uint256,uint256,uint256)",
}
