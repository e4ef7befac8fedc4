package validate

import (
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

type family int

const (
	familyUnknown family = iota
	familyEVM
	familyBitcoin
	familyLitecoin
	familyBitcoinCash
	familyDogecoin
	familyDash
	familyZcash
	familyTron
	familyRipple
	familySolana
	familyBinanceChain
	familyStarknet
)

var networkFamilies = map[string]family{
	"ethereum":            familyEVM,
	"eth":                 familyEVM,
	"polygon":             familyEVM,
	"matic":               familyEVM,
	"bsc":                 familyEVM,
	"binance smart chain": familyEVM,
	"bnb chain":           familyEVM,
	"arbitrum":            familyEVM,
	"optimism":            familyEVM,
	"avalanche":           familyEVM,
	"avax":                familyEVM,
	"base":                familyEVM,

	"bitcoin":      familyBitcoin,
	"btc":          familyBitcoin,
	"litecoin":     familyLitecoin,
	"ltc":          familyLitecoin,
	"bitcoin cash": familyBitcoinCash,
	"bch":          familyBitcoinCash,
	"dogecoin":     familyDogecoin,
	"doge":         familyDogecoin,
	"dash":         familyDash,
	"zcash":        familyZcash,
	"zec":          familyZcash,

	"tron":          familyTron,
	"trx":           familyTron,
	"ripple":        familyRipple,
	"xrp":           familyRipple,
	"solana":        familySolana,
	"sol":           familySolana,
	"binance chain": familyBinanceChain,
	"bnb":           familyBinanceChain,
	"starknet":      familyStarknet,
}

var (
	litecoinPattern    = regexp.MustCompile(`^([LM3][a-km-zA-HJ-NP-Z1-9]{26,33}|ltc1[a-z0-9]{39,59})$`)
	bitcoinCashPattern = regexp.MustCompile(`^([13][a-km-zA-HJ-NP-Z1-9]{25,34}|(bitcoincash:)?[qp][a-z0-9]{41})$`)
	dogecoinPattern    = regexp.MustCompile(`^D[5-9A-HJ-NP-U][1-9A-HJ-NP-Za-km-z]{32}$`)
	dashPattern        = regexp.MustCompile(`^X[1-9A-HJ-NP-Za-km-z]{33}$`)
	zcashPattern       = regexp.MustCompile(`^t1[a-km-zA-HJ-NP-Z1-9]{33}$`)
	tronPattern        = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	ripplePattern      = regexp.MustCompile(`^r[rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz]{24,34}$`)
	solanaPattern      = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	bnbChainPattern    = regexp.MustCompile(`^bnb1[0-9a-z]{38}$`)
	starknetPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{63,64}$`)

	// формы адресов для неизвестных сетей
	fallbackHex     = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	fallbackBase58  = regexp.MustCompile(`^[123][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	fallbackBech32  = regexp.MustCompile(`^(bc|tb|ltc|tltc|bch)[a-z0-9]{6,100}$`)
	fallbackGeneric = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
)

// IsValidAddress проверяет адрес для сети. Сети одного семейства (EVM) делят валидатор.
func IsValidAddress(address, network string) bool {
	address = strings.TrimSpace(address)
	if address == "" || network == "" {
		return false
	}

	switch networkFamilies[strings.ToLower(strings.TrimSpace(network))] {
	case familyEVM:
		return isEVMAddress(address)
	case familyBitcoin:
		return isBitcoinAddress(address)
	case familyLitecoin:
		return litecoinPattern.MatchString(address)
	case familyBitcoinCash:
		return bitcoinCashPattern.MatchString(address)
	case familyDogecoin:
		return dogecoinPattern.MatchString(address)
	case familyDash:
		return dashPattern.MatchString(address)
	case familyZcash:
		return zcashPattern.MatchString(address)
	case familyTron:
		return isTronAddress(address)
	case familyRipple:
		return ripplePattern.MatchString(address)
	case familySolana:
		return isSolanaAddress(address)
	case familyBinanceChain:
		return bnbChainPattern.MatchString(address)
	case familyStarknet:
		return starknetPattern.MatchString(address)
	default:
		return fallbackAddress(address)
	}
}

// ValidFor возвращает результат проверки адреса для каждой сети по порядку
func ValidFor(address string, networks []string) []bool {
	out := make([]bool, len(networks))
	for i, n := range networks {
		out[i] = IsValidAddress(address, n)
	}
	return out
}

func isEVMAddress(address string) bool {
	// common.IsHexAddress допускает адрес без префикса, нам нужен строгий 0x
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		return false
	}
	return common.IsHexAddress(address)
}

func isBitcoinAddress(address string) bool {
	addr, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams)
	if err != nil {
		return false
	}
	return addr.IsForNet(&chaincfg.MainNetParams)
}

// isTronAddress: base58check, 21 байт полезной нагрузки с префиксом 0x41 и 4 байта контрольной суммы
func isTronAddress(address string) bool {
	if !tronPattern.MatchString(address) {
		return false
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return false
	}
	return len(raw) == 25 && raw[0] == 0x41
}

func isSolanaAddress(address string) bool {
	if !solanaPattern.MatchString(address) {
		return false
	}
	raw, err := base58.Decode(address)
	return err == nil && len(raw) == 32
}

func fallbackAddress(address string) bool {
	if len(address) < 25 || len(address) > 100 {
		return false
	}
	switch {
	case strings.HasPrefix(address, "0x"):
		return fallbackHex.MatchString(address)
	case fallbackBase58.MatchString(address),
		fallbackBech32.MatchString(address),
		tronPattern.MatchString(address):
		return true
	default:
		return fallbackGeneric.MatchString(address)
	}
}
