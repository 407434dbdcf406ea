package region

// NewEU868 returns the default EU868 plan: the three mandatory channels
// plus five supplemental ones (carried in a Join-Accept's CFList), DR0..6
// LoRa plus DR7 FSK, and a fixed RX2 default of DR0/869.525MHz.
func NewEU868() *Region {
	return &Region{
		Name: "EU868",
		UpChannels: []Channel{
			{Freq: 868100000},
			{Freq: 868300000},
			{Freq: 868500000},
			{Freq: 867100000},
			{Freq: 867300000},
			{Freq: 867500000},
			{Freq: 867700000},
			{Freq: 867900000},
		},
		DRs: map[int]DR{
			0: {Sf: 12, Bw: 125000},
			1: {Sf: 11, Bw: 125000},
			2: {Sf: 10, Bw: 125000},
			3: {Sf: 9, Bw: 125000},
			4: {Sf: 8, Bw: 125000},
			5: {Sf: 7, Bw: 125000},
			6: {Sf: 7, Bw: 250000},
			7: {Sf: 0, Bw: 0}, // FSK 50kbps
		},
		MinDR:   0,
		MaxDR:   7,
		RX2DR:   0,
		RX2Freq: 869525000,
		MaxEIRP: 16,
	}
}
