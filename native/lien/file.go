package lien

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// FileType tags an administrative configuration update.
type FileType uint8

const (
	FileCollateralToken FileType = iota
	FileRouter
	FileBuyoutFee
	FileBuyoutFeeDurationCap
	FileMinInterestBPS
	FileMinDurationIncrease
	FileMinLoanDuration
	FileMaxLiens
	FileAuctionFloor
)

var fileTypeNames = map[FileType]string{
	FileCollateralToken:      "CollateralToken",
	FileRouter:               "Router",
	FileBuyoutFee:            "BuyoutFee",
	FileBuyoutFeeDurationCap: "BuyoutFeeDurationCap",
	FileMinInterestBPS:       "MinInterestBPS",
	FileMinDurationIncrease:  "MinDurationIncrease",
	FileMinLoanDuration:      "MinLoanDuration",
	FileMaxLiens:             "MaxLiens",
	FileAuctionFloor:         "AuctionFloor",
}

func (f FileType) String() string {
	if name, ok := fileTypeNames[f]; ok {
		return name
	}
	return fmt.Sprintf("FileType(%d)", uint8(f))
}

// ParseFileType resolves a configuration kind by name, case-insensitively.
func ParseFileType(name string) (FileType, error) {
	trimmed := strings.TrimSpace(name)
	for kind, known := range fileTypeNames {
		if strings.EqualFold(known, trimmed) {
			return kind, nil
		}
	}
	return 0, ErrUnsupportedFile
}

// FileRequest is an administrative update. Data is a sequence of 32 byte
// big-endian words.
type FileRequest struct {
	What FileType
	Data []byte
}

const wordSize = 32

// EncodeWords packs values into the 32 byte word layout File expects.
func EncodeWords(values ...*big.Int) ([]byte, error) {
	out := make([]byte, 0, len(values)*wordSize)
	for _, v := range values {
		u, err := toUint256(v)
		if err != nil {
			return nil, err
		}
		word := u.Bytes32()
		out = append(out, word[:]...)
	}
	return out, nil
}

// EncodeAddressWord left-pads an address to a single word.
func EncodeAddressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), wordSize)
}

func decodeWords(data []byte, n int) ([]*uint256.Int, error) {
	if len(data) != n*wordSize {
		return nil, ErrMalformedFile
	}
	words := make([]*uint256.Int, n)
	for i := range words {
		words[i] = new(uint256.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
	}
	return words, nil
}

func decodeAddress(data []byte) (common.Address, error) {
	words, err := decodeWords(data, 1)
	if err != nil {
		return common.Address{}, err
	}
	if words[0].BitLen() > common.AddressLength*8 {
		return common.Address{}, ErrNarrowing
	}
	return common.BytesToAddress(data[wordSize-common.AddressLength:]), nil
}

func decodeFraction(data []byte) (uint32, uint32, error) {
	words, err := decodeWords(data, 2)
	if err != nil {
		return 0, 0, err
	}
	numerator, err := safeCastTo32(words[0])
	if err != nil {
		return 0, 0, err
	}
	denominator, err := safeCastTo32(words[1])
	if err != nil {
		return 0, 0, err
	}
	if err := validateFraction(numerator, denominator); err != nil {
		return 0, 0, err
	}
	return numerator, denominator, nil
}

func decodeUint32(data []byte) (uint32, error) {
	words, err := decodeWords(data, 1)
	if err != nil {
		return 0, err
	}
	return safeCastTo32(words[0])
}

// apply validates the request against cfg and writes the new value into it.
func (r FileRequest) apply(cfg *Params) error {
	switch r.What {
	case FileCollateralToken:
		addr, err := decodeAddress(r.Data)
		if err != nil {
			return err
		}
		cfg.CollateralToken = addr
	case FileRouter:
		addr, err := decodeAddress(r.Data)
		if err != nil {
			return err
		}
		cfg.Router = addr
	case FileBuyoutFee:
		numerator, denominator, err := decodeFraction(r.Data)
		if err != nil {
			return err
		}
		cfg.BuyoutFeeNumerator, cfg.BuyoutFeeDenominator = numerator, denominator
	case FileBuyoutFeeDurationCap:
		numerator, denominator, err := decodeFraction(r.Data)
		if err != nil {
			return err
		}
		cfg.DurationFeeCapNumerator, cfg.DurationFeeCapDenominator = numerator, denominator
	case FileMinInterestBPS:
		v, err := decodeUint32(r.Data)
		if err != nil {
			return err
		}
		cfg.MinInterestBPS = v
	case FileMinDurationIncrease:
		v, err := decodeUint32(r.Data)
		if err != nil {
			return err
		}
		cfg.MinDurationIncrease = v
	case FileMinLoanDuration:
		v, err := decodeUint32(r.Data)
		if err != nil {
			return err
		}
		cfg.MinLoanDuration = v
	case FileMaxLiens:
		words, err := decodeWords(r.Data, 1)
		if err != nil {
			return err
		}
		v, err := safeCastTo8(words[0])
		if err != nil {
			return err
		}
		cfg.MaxLiens = v
	case FileAuctionFloor:
		words, err := decodeWords(r.Data, 1)
		if err != nil {
			return err
		}
		floor, err := safeCastTo88(words[0].ToBig())
		if err != nil {
			return err
		}
		if floor.Sign() == 0 {
			return ErrInvalidAuctionFloor
		}
		cfg.AuctionFloor = floor
	default:
		return ErrUnsupportedFile
	}
	return nil
}

// File applies an administrative configuration update. Every kind is
// validated before the params are persisted.
func (e *Engine) File(caller common.Address, req FileRequest) error {
	return e.execute(func(op *operation) error {
		cfg, err := e.Params()
		if err != nil {
			return err
		}
		if e.authority == nil || !e.authority.CanCall(caller, CapFile) {
			return ErrNotAuthorized
		}
		if err := req.apply(&cfg); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := e.state.LienParamsPut(&cfg); err != nil {
			return fmt.Errorf("lien engine: store params: %w", err)
		}
		op.emit(NewFileUpdatedEvent(req.What, req.Data))
		return nil
	})
}
