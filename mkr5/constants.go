package mkr5

// Transaction block codes (spec.md §3): CDx are host->pump, DCx pump->host.
const (
	cd1Command       = 0x01 // CD1: command
	cd2AllowedNozzles = 0x02 // CD2: allowed nozzles list
	cd3PresetVolume  = 0x03 // CD3: preset volume
	cd4PresetAmount  = 0x04 // CD4: preset amount
	cd5PriceUpdate   = 0x05 // CD5: price update

	dc1Status  = 0x01 // DC1: pump status
	dc2Filling = 0x02 // DC2: dispensed vol+amt
	dc3Nozzle  = 0x03 // DC3: nozzle+price
	dc7Params  = 0x07 // DC7: pump parameters
)

// CD1 command DCC values (spec.md §3 table).
const (
	DCCReturnStatus      = 0x00
	DCCAuthorizeLegacy    = 0x01
	DCCReturnPumpParams  = 0x02
	DCCReturnPumpIdentity = 0x03
	DCCReturnFillingInfo = 0x04
	DCCReset             = 0x05
	DCCAuthorize          = 0x06
	DCCStop              = 0x08
	DCCSwitchOff         = 0x0A
)

// GradeTableOffset is DC7's grade[1..15] table start offset; spec.md §9
// documents a 30 default with a 35 variant seen in some source revisions.
const GradeTableOffset = 30

// dc7DecimalsOffset is where DC7 stores decimal-place hints (spec.md §3).
const dc7DecimalsOffset = 22
