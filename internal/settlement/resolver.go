package settlement

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/i474232898/weather-markets/internal/attestation"
	"github.com/i474232898/weather-markets/internal/market"
	"github.com/i474232898/weather-markets/internal/weather"
)

// Resolver submits the outcome of one market.
type Resolver interface {
	Resolve(ctx context.Context, m market.Market, city market.City, reading weather.Reading) (common.Hash, error)
}

// DirectWriter is the contract call used by DirectResolver.
type DirectWriter interface {
	ResolveMarket(ctx context.Context, id uint64, tempTenths, observedTimestamp int64) (common.Hash, error)
}

// DirectResolver submits (temp, observedTimestamp) as reported by the provider.
type DirectResolver struct {
	contract DirectWriter
}

func NewDirectResolver(contract DirectWriter) *DirectResolver {
	return &DirectResolver{contract: contract}
}

func (r *DirectResolver) Resolve(ctx context.Context, m market.Market, _ market.City, reading weather.Reading) (common.Hash, error) {
	return r.contract.ResolveMarket(ctx, m.ID, reading.TempTenths, reading.ObservedTimestamp)
}

// Attester obtains a proof bundle for a reading.
type Attester interface {
	Attest(ctx context.Context, lat, lon float64, timestamp int64) (attestation.Proof, error)
}

// ProofWriter is the contract call used by AttestationResolver.
type ProofWriter interface {
	ResolveMarketWithProof(ctx context.Context, id uint64, proof [][32]byte, attestationData []byte) (common.Hash, error)
}

// AttestationResolver has the oracle attest to the same observation the
// provider returned, then submits the proof instead of the raw values.
type AttestationResolver struct {
	attester Attester
	contract ProofWriter
}

func NewAttestationResolver(attester Attester, contract ProofWriter) *AttestationResolver {
	return &AttestationResolver{attester: attester, contract: contract}
}

func (r *AttestationResolver) Resolve(ctx context.Context, m market.Market, city market.City, reading weather.Reading) (common.Hash, error) {
	proof, err := r.attester.Attest(ctx, city.Latitude, city.Longitude, reading.ObservedTimestamp)
	if err != nil {
		return common.Hash{}, fmt.Errorf("attest market %d: %w", m.ID, err)
	}
	return r.contract.ResolveMarketWithProof(ctx, m.ID, proof.Nodes, proof.Data)
}
