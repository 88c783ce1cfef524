package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowtick/liquidator/internal/chain/contractclient"
	"github.com/shadowtick/liquidator/internal/presim"
	"github.com/shadowtick/liquidator/pkg/types"
)

func TestBuildTemplateOffsetsMatchPackedLayout(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(poolABI))
	require.NoError(t, err)

	c := &Client{executor: contractclient.NewContractClient(nil, common.Address{}, parsed)}

	debt := types.FromCommon(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	collat := types.FromCommon(common.HexToAddress("0x0000000000000000000000000000000000000002"))

	tmpl, err := c.BuildTemplate(debt, collat)
	require.NoError(t, err)
	assert.Equal(t, debt, tmpl.DebtToken)
	assert.Equal(t, collat, tmpl.CollatToken)

	user := types.FromCommon(common.HexToAddress("0x0000000000000000000000000000000000000003"))
	patched, err := presim.PatchUserAndRepay(tmpl, user, big.NewInt(12345))
	require.NoError(t, err)

	unpacked, err := parsed.Methods["liquidationCall"].Inputs.Unpack(patched[4:])
	require.NoError(t, err)
	assert.Equal(t, user.Common(), unpacked[2])
	assert.Equal(t, big.NewInt(12345), unpacked[3])
}
