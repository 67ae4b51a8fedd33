// internal/comm/dongle/database.go
package dongle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/gousb"
)

// DongleInfo describes a known USB dongle
type DongleInfo struct {
	Vendor  gousb.ID
	Product gousb.ID
	Name    string
}

// Database contains the USB dongles the manager looks for
type Database struct {
	known map[[2]gousb.ID]DongleInfo
}

// NewDatabase creates the dongle database with the built-in entries plus
// extras given as "vid:pid" or "vid:pid:name" hex strings.
func NewDatabase(extras []string) (*Database, error) {
	db := &Database{known: make(map[[2]gousb.ID]DongleInfo)}

	// Lovense USB dongle (Nordic nRF52 based)
	db.add(DongleInfo{Vendor: 0x1915, Product: 0x520A, Name: "Lovense USB Dongle"})

	for _, extra := range extras {
		info, err := parseDongle(extra)
		if err != nil {
			return nil, fmt.Errorf("invalid usb device %q: %w", extra, err)
		}
		db.add(info)
	}
	return db, nil
}

// Lookup returns the entry for vendor/product
func (db *Database) Lookup(vendor, product gousb.ID) (DongleInfo, bool) {
	info, ok := db.known[[2]gousb.ID{vendor, product}]
	return info, ok
}

// Len returns the number of known dongles
func (db *Database) Len() int {
	return len(db.known)
}

func (db *Database) add(info DongleInfo) {
	db.known[[2]gousb.ID{info.Vendor, info.Product}] = info
}

func parseDongle(s string) (DongleInfo, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 3)
	if len(parts) < 2 {
		return DongleInfo{}, fmt.Errorf("expected vid:pid")
	}

	vendor, err := parseHexID(parts[0])
	if err != nil {
		return DongleInfo{}, fmt.Errorf("vendor id: %w", err)
	}
	product, err := parseHexID(parts[1])
	if err != nil {
		return DongleInfo{}, fmt.Errorf("product id: %w", err)
	}

	info := DongleInfo{Vendor: vendor, Product: product}
	if len(parts) == 3 && parts[2] != "" {
		info.Name = parts[2]
	} else {
		info.Name = fmt.Sprintf("USB-%04X:%04X", uint16(vendor), uint16(product))
	}
	return info, nil
}

// parseHexID parses hex ID string (0x1234 or 1234)
func parseHexID(hexStr string) (gousb.ID, error) {
	hexStr = strings.TrimPrefix(strings.ToLower(hexStr), "0x")

	id, err := strconv.ParseUint(hexStr, 16, 16)
	if err != nil {
		return 0, err
	}
	return gousb.ID(id), nil
}
