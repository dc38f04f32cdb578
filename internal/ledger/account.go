package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeUser AccountScope = iota
	AccountScopeSystem
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// User sub-types
	SubTypeBalance AccountSubType = iota

	// System sub-types
	SubTypeSystemReserve    // insurance reserve stablecoin pool
	SubTypeSystemVault      // collateral custody for all positions
	SubTypeSystemRewardPool // staker reward collateral accrued from liquidations

	// External sub-types
	SubTypeExternalIssued   // mint/burn counterpart for the stablecoin
	SubTypeExternalDeposits // collateral entering/leaving custody boundary
)

// AssetID maps asset strings to numeric IDs for performance
type AssetID uint16

var (
	assetToID = map[string]AssetID{
		"MAD":  1,
		"WETH": 2,
	}
	idToAsset = map[AssetID]string{
		1: "MAD",
		2: "WETH",
	}
)

const (
	AssetStable     AssetID = 1 // MAD, the protocol's stablecoin
	AssetCollateral AssetID = 2 // WETH, the single collateral asset
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // UUID for users, name bytes for system accounts
	SubType  AccountSubType
	AssetID  AssetID
}

// NewUserAccountKey creates a key for user accounts
func NewUserAccountKey(userID uuid.UUID, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeUser,
		EntityID: userID,
		SubType:  SubTypeBalance,
		AssetID:  assetID,
	}
}

// NewSystemAccountKey creates a key for system accounts
func NewSystemAccountKey(name string, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// Well-known system accounts. The reserve holds pooled stablecoin staked
// by insurance participants; the vault holds every position's collateral;
// the reward pool holds collateral earmarked for stakers.
func ReserveAccount() AccountKey {
	return NewSystemAccountKey("reserve", SubTypeSystemReserve, AssetStable)
}

func VaultAccount() AccountKey {
	return NewSystemAccountKey("vault", SubTypeSystemVault, AssetCollateral)
}

func RewardPoolAccount() AccountKey {
	return NewSystemAccountKey("reward_pool", SubTypeSystemRewardPool, AssetCollateral)
}

func IssuedAccount() AccountKey {
	return NewExternalAccountKey(SubTypeExternalIssued, AssetStable)
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeUser:
		uid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("user:%s:%s:%s", uid.String(), k.subTypeName(), assetName)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.subTypeName(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath, used when restoring
// balances from a snapshot.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	if len(parts) < 3 {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}

	switch parts[0] {
	case "user":
		if len(parts) != 4 {
			return AccountKey{}, fmt.Errorf("malformed user account path %q", path)
		}
		uid, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset %q", path, parts[3])
		}
		return NewUserAccountKey(uid, assetID), nil

	case "system":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed system account path %q", path)
		}
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown sub-type %q", path, parts[1])
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset %q", path, parts[2])
		}
		return NewSystemAccountKey(parts[1], subType, assetID), nil

	case "external":
		if len(parts) != 3 {
			return AccountKey{}, fmt.Errorf("malformed external account path %q", path)
		}
		subType, ok := subTypeFromName(parts[1])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown sub-type %q", path, parts[1])
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("account path %q: unknown asset %q", path, parts[2])
		}
		return NewExternalAccountKey(subType, assetID), nil
	}

	return AccountKey{}, fmt.Errorf("unknown account scope in path %q", path)
}

func subTypeFromName(name string) (AccountSubType, bool) {
	switch name {
	case "balance":
		return SubTypeBalance, true
	case "reserve":
		return SubTypeSystemReserve, true
	case "vault":
		return SubTypeSystemVault, true
	case "reward_pool":
		return SubTypeSystemRewardPool, true
	case "issued":
		return SubTypeExternalIssued, true
	case "deposits":
		return SubTypeExternalDeposits, true
	default:
		return 0, false
	}
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeBalance:
		return "balance"
	case SubTypeSystemReserve:
		return "reserve"
	case SubTypeSystemVault:
		return "vault"
	case SubTypeSystemRewardPool:
		return "reward_pool"
	case SubTypeExternalIssued:
		return "issued"
	case SubTypeExternalDeposits:
		return "deposits"
	default:
		return "unknown"
	}
}
