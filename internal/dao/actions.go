package dao

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/quantumauth-io/dao-agent/internal/apperr"
	"github.com/quantumauth-io/dao-agent/internal/contracts"
)

// EncodeActions builds proposal actions from a high level description.
// addDAOMembers targets the DAO itself with zero value; deposits are given
// in ether.
func EncodeActions(req ActionsRequest) ([]ActionView, error) {
	dao, members, err := req.parse()
	if err != nil {
		return nil, err
	}
	data, err := contracts.DAOABI.Pack("addDAOMembers", members)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInput, apperr.CodeInvalidRequest, "encode addDAOMembers")
	}
	return []ActionView{{To: dao.Hex(), Value: "0", Data: hexutil.Encode(data)}}, nil
}
