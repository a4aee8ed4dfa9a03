package neural

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/yaricom/goNEAT/v4/neat/genetics"
	neatmath "github.com/yaricom/goNEAT/v4/neat/math"
	"github.com/yaricom/goNEAT/v4/neat/network"
)

// ErrCorruptGenome is returned when a genome blob cannot be decoded.
var ErrCorruptGenome = errors.New("corrupt genome blob")

const (
	geneEnabled   = 1 << 0
	geneRecurrent = 1 << 1

	maxBlobNodes = 1 << 16
	maxBlobGenes = 1 << 20
)

type nodeRecord struct {
	ID         int32
	Type       uint8
	Activation uint8
}

type geneRecord struct {
	In, Out  int32
	Weight   float64
	Innov    int64
	Mutation float64
	Flags    uint8
}

// EncodeGenome writes a compact little-endian description of g.
func EncodeGenome(w io.Writer, g *genetics.Genome) error {
	if g == nil {
		return fmt.Errorf("encode: %w", ErrNilGenome)
	}
	var buf bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, int32(g.Id))
	_ = binary.Write(&buf, le, uint32(len(g.Nodes)))
	for _, n := range g.Nodes {
		_ = binary.Write(&buf, le, nodeRecord{
			ID:         int32(n.Id),
			Type:       uint8(n.NeuronType),
			Activation: uint8(n.ActivationType),
		})
	}
	_ = binary.Write(&buf, le, uint32(len(g.Genes)))
	for _, gene := range g.Genes {
		var flags uint8
		if gene.IsEnabled {
			flags |= geneEnabled
		}
		if gene.Link.IsRecurrent {
			flags |= geneRecurrent
		}
		_ = binary.Write(&buf, le, geneRecord{
			In:       int32(gene.Link.InNode.Id),
			Out:      int32(gene.Link.OutNode.Id),
			Weight:   gene.Link.ConnectionWeight,
			Innov:    gene.InnovationNum,
			Mutation: gene.MutationNum,
			Flags:    flags,
		})
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// DecodeGenome reads a genome written by EncodeGenome.
func DecodeGenome(r io.Reader) (*genetics.Genome, error) {
	le := binary.LittleEndian
	var (
		id     int32
		nNodes uint32
	)
	if err := binary.Read(r, le, &id); err != nil {
		return nil, corrupt(err)
	}
	if err := binary.Read(r, le, &nNodes); err != nil {
		return nil, corrupt(err)
	}
	if nNodes > maxBlobNodes {
		return nil, fmt.Errorf("%w: %d nodes", ErrCorruptGenome, nNodes)
	}
	nodes := make([]*network.NNode, 0, nNodes)
	byID := make(map[int]*network.NNode, nNodes)
	for i := uint32(0); i < nNodes; i++ {
		var rec nodeRecord
		if err := binary.Read(r, le, &rec); err != nil {
			return nil, corrupt(err)
		}
		n := network.NewNNode(int(rec.ID), network.NodeNeuronType(rec.Type))
		n.ActivationType = neatmath.NodeActivationType(rec.Activation)
		nodes = append(nodes, n)
		byID[n.Id] = n
	}

	var nGenes uint32
	if err := binary.Read(r, le, &nGenes); err != nil {
		return nil, corrupt(err)
	}
	if nGenes > maxBlobGenes {
		return nil, fmt.Errorf("%w: %d genes", ErrCorruptGenome, nGenes)
	}
	genes := make([]*genetics.Gene, 0, nGenes)
	for i := uint32(0); i < nGenes; i++ {
		var rec geneRecord
		if err := binary.Read(r, le, &rec); err != nil {
			return nil, corrupt(err)
		}
		in, out := byID[int(rec.In)], byID[int(rec.Out)]
		if in == nil || out == nil {
			return nil, fmt.Errorf("%w: gene %d references missing node", ErrCorruptGenome, rec.Innov)
		}
		gene := genetics.NewGeneWithTrait(nil, rec.Weight, in, out, rec.Flags&geneRecurrent != 0, rec.Innov, rec.Mutation)
		gene.IsEnabled = rec.Flags&geneEnabled != 0
		genes = append(genes, gene)
	}
	return genetics.NewGenome(int(id), nil, nodes, genes), nil
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorruptGenome, err)
}
