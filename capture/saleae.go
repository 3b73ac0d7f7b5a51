package capture

import (
	"errors"
	"fmt"
	"io"

	"github.com/soypat/qspi"
	"github.com/soypat/qspi/logic"
	"github.com/soypat/qspi/sim"
	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

// Transaction is one chip select framed exchange of a standard single
// line SPI capture.
type Transaction struct {
	// Start time in seconds from the start of the capture.
	Start float64
	SDO   []byte
	SDI   []byte
}

// SaleaeFiles are the Saleae Logic binary digital exports of each line.
// SDI may be nil for captures where MISO was not probed.
type SaleaeFiles struct {
	Clock  io.Reader
	Enable io.Reader
	SDO    io.Reader
	SDI    io.Reader
}

// ReadSaleaeSPI frames the transactions of a Saleae standard SPI capture.
func ReadSaleaeSPI(files SaleaeFiles) ([]Transaction, error) {
	if files.Clock == nil || files.Enable == nil || files.SDO == nil {
		return nil, errors.New("capture: saleae capture needs clock, enable and sdo files")
	}
	clk, err := saleae.ReadDigitalFile(files.Clock)
	if err != nil {
		return nil, fmt.Errorf("capture: saleae clock: %w", err)
	}
	enable, err := saleae.ReadDigitalFile(files.Enable)
	if err != nil {
		return nil, fmt.Errorf("capture: saleae enable: %w", err)
	}
	sdo, err := saleae.ReadDigitalFile(files.SDO)
	if err != nil {
		return nil, fmt.Errorf("capture: saleae sdo: %w", err)
	}
	sdi := sdo
	hasSDI := files.SDI != nil
	if hasSDI {
		sdi, err = saleae.ReadDigitalFile(files.SDI)
		if err != nil {
			return nil, fmt.Errorf("capture: saleae sdi: %w", err)
		}
	}
	spi := analyzers.SPI{}
	txs, err := spi.Scan(clk, enable, sdo, sdi)
	if err != nil && len(txs) == 0 {
		return nil, fmt.Errorf("capture: saleae spi scan: %w", err)
	}
	out := make([]Transaction, 0, len(txs))
	for i := range txs {
		tx := Transaction{
			Start: txs[i].StartTime(),
			SDO:   txs[i].SDO,
		}
		if hasSDI {
			tx.SDI = txs[i].SDI
		}
		out = append(out, tx)
	}
	return out, nil
}

// Resynthesize clocks transactions onto a simulated single line bus so
// they can be decoded. Sample positions of the result are synthetic: each
// bit takes two samples and transactions are separated by idle gaps.
//
// A single line decoder reads IO0 XOR IO1, so only the side driving a byte
// may be replayed. set decides which side that is: the opcode, address and
// dummy bytes and master data come from SDO, device data from SDI. Bytes
// after an opcode the set does not know, or after an instruction without a
// data phase, are replayed full duplex.
func Resynthesize(set *qspi.InstructionSet, txs []Transaction) (*logic.Trace, error) {
	if set == nil {
		return nil, errors.New("capture: nil instruction set")
	}
	lines := []qspi.Line{qspi.LineCS}
	for i := range txs {
		if txs[i].SDI != nil {
			lines = append(lines, qspi.LineMISO)
			break
		}
	}
	bus := sim.NewBus(qspi.EdgeRising, lines...)
	for _, tx := range txs {
		var ins *qspi.Instruction
		header := 1
		if len(tx.SDO) > 0 {
			ins = set.Lookup(tx.SDO[0])
		}
		if ins != nil {
			header += ins.Address.Bytes() + ins.Dummy.Bytes()
		}
		bus.Select()
		for i, sdo := range tx.SDO {
			var sdi byte
			if i < len(tx.SDI) {
				sdi = tx.SDI[i]
			}
			switch {
			case i < header:
				sdi = 0
			case ins == nil || !ins.Data.Active:
			case ins.Data.Direction == qspi.MasterWrite:
				sdi = 0
			default:
				sdo = 0
			}
			bus.Exchange(sdo, sdi)
		}
		bus.Deselect()
	}
	return bus.Trace()
}
