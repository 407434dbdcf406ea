package region

// NewUS915 returns a simplified US915 plan restricted to the first 8 of
// the 64 125kHz upstream channels (902.3..903.7MHz), eight 500kHz RX1
// downlink channels (923.3..927.5MHz), DR0..3 LoRa plus DR4 (SF8/BW500),
// and a fixed RX2 default of DR4 (SF8/BW500)/923.3MHz.
func NewUS915() *Region {
	up := make([]Channel, 0, 9)
	for i := 0; i < 8; i++ {
		up = append(up, Channel{Freq: 902300000 + uint32(i)*200000})
	}

	dn := make([]Channel, 8)
	for i := range dn {
		dn[i] = Channel{Freq: 923300000 + uint32(i)*600000}
	}

	return &Region{
		Name:       "US915",
		UpChannels: up,
		DRs: map[int]DR{
			0: {Sf: 10, Bw: 125000},
			1: {Sf: 9, Bw: 125000},
			2: {Sf: 8, Bw: 125000},
			3: {Sf: 7, Bw: 125000},
			4: {Sf: 8, Bw: 500000},
		},
		MinDR:   0,
		MaxDR:   4,
		RX2DR:   4,
		RX2Freq: 923300000,
		MaxEIRP: 30,
		dnFreq: func(r *Region, ch int) uint32 {
			return dn[ch%len(dn)].Freq
		},
	}
}
