package chain

import (
	"context"
	"net/http"

	ethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

func ethRPCDial(ctx context.Context, url string, httpClient *http.Client) (*ethrpc.Client, error) {
	return ethrpc.DialOptions(ctx, url, ethrpc.WithHTTPClient(httpClient))
}

// CallMsg mirrors ethereum.CallMsg without forcing every call site in this
// module to import go-ethereum directly.
type CallMsg struct {
	From common.Address
	To   *common.Address
	Data []byte
}

func (m CallMsg) toEthereum() ethereum.CallMsg {
	return ethereum.CallMsg{
		From: m.From,
		To:   m.To,
		Data: m.Data,
	}
}
