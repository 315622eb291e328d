package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const nativeTransferGas = 21000

// Minimal ERC-20 surface: balance reads and transfers are all the
// custodian needs.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// EthClient implements Client against an Ethereum-compatible JSON-RPC
// endpoint.
type EthClient struct {
	client  *ethclient.Client
	chainID *big.Int
	erc20   abi.ABI
}

// NewEthClient dials the RPC endpoint and caches the chain id for
// transaction signing.
func NewEthClient(ctx context.Context, rpcURL string) (*EthClient, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	return &EthClient{client: cli, chainID: chainID, erc20: parsedABI}, nil
}

// CreateAddress generates a fresh keypair. crypto.GenerateKey reads
// from crypto/rand, satisfying the CSPRNG requirement for custodial
// keys.
func (c *EthClient) CreateAddress(_ context.Context) (Keypair, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{
		Address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Secret:  hex.EncodeToString(crypto.FromECDSA(key)),
	}, nil
}

// GetBalance returns the current holdings of the asset at the address.
func (c *EthClient) GetBalance(ctx context.Context, address, assetID string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	if assetID == "" {
		balance, err := c.client.BalanceAt(ctx, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", address, err)
		}
		return balance, nil
	}

	data, err := c.erc20.Pack("balanceOf", addr)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	token := common.HexToAddress(assetID)
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("token balance of %s: %w", address, err)
	}
	results, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", results[0])
	}
	return balance, nil
}

// EstimateFee returns the cost of one outbound transfer in the asset's
// own units. Token transfers pay their fee in the native coin, so the
// fee in token units is zero.
func (c *EthClient) EstimateFee(ctx context.Context, assetID string) (*big.Int, error) {
	if assetID != "" {
		return big.NewInt(0), nil
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return new(big.Int).Mul(gasPrice, big.NewInt(nativeTransferGas)), nil
}

// SubmitTransfer signs and broadcasts one transfer and returns its
// transaction hash.
func (c *EthClient) SubmitTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(req.FromSecret, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse from secret: %w", err)
	}

	from := crypto.PubkeyToAddress(key.PublicKey)
	nonce, err := c.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	var tx *types.Transaction
	if req.AssetID == "" {
		to := common.HexToAddress(req.ToAddress)
		tx = types.NewTransaction(nonce, to, req.Amount, nativeTransferGas, gasPrice, nil)
	} else {
		data, err := c.erc20.Pack("transfer", common.HexToAddress(req.ToAddress), req.Amount)
		if err != nil {
			return "", fmt.Errorf("pack transfer: %w", err)
		}
		token := common.HexToAddress(req.AssetID)
		gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &token, Data: data})
		if err != nil {
			return "", fmt.Errorf("estimate gas: %w", err)
		}
		tx = types.NewTransaction(nonce, token, big.NewInt(0), gasLimit, gasPrice, data)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), key)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}
	return signed.Hash().Hex(), nil
}

// GetTransferStatus maps receipt state onto the three-valued status.
func (c *EthClient) GetTransferStatus(ctx context.Context, signature string) (TransferStatus, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(signature))
	if errors.Is(err, ethereum.NotFound) {
		return StatusPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("transaction receipt: %w", err)
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return StatusConfirmed, nil
	}
	return StatusFailed, nil
}
