package arch

// Wormhole B0 grid: 10 columns x 12 rows in NOC0. ARC and PCIe sit in
// column 0 and ETH in row 6; tensix occupies rows 1-5 and 7-11 of columns
// 1-9. These are
// simplified, internally-consistent defaults (not a byte-exact transcription
// of the real SoC descriptor YAML, which spec.md §1 explicitly treats as an
// external data file) sized so every invariant in spec.md §8 is exercisable.
var wormholeImpl = buildWormholeImpl()

func buildWormholeImpl() *Impl {
	const gx, gy = 10, 12

	var tensix []Coord
	for y := 1; y < gy; y++ {
		if y == 6 {
			continue // row 6 reserved for ETH
		}
		for x := 1; x < gx; x++ {
			tensix = append(tensix, Coord{X: x, Y: y})
		}
	}

	var eth []Coord
	for x := 1; x < gx; x++ {
		eth = append(eth, Coord{X: x, Y: 6})
	}

	dram := [][]Coord{
		{{X: 0, Y: 0}, {X: 0, Y: 1}},
		{{X: 0, Y: 5}, {X: 0, Y: 6}},
		{{X: 0, Y: 7}, {X: 0, Y: 11}},
	}

	arcCores := []Coord{{X: 0, Y: 2}}
	pcie := []Coord{{X: 0, Y: 3}, {X: 0, Y: 4}}

	// Wormhole swaps NOC1 rows relative to NOC0; columns are identity.
	noc1Y := make([]int, gy)
	for y := 0; y < gy; y++ {
		noc1Y[y] = gy - 1 - y
	}

	return &Impl{
		Arch: WormholeB0,
		TlbSizeClasses: []TlbSizeClass{
			{Size: 1 << 20, Count: 156},  // 1 MB
			{Size: 2 << 20, Count: 10},   // 2 MB
			{Size: 16 << 20, Count: 2},   // 16 MB
		},
		ArcScratchBase: 0x1FF30000,
		ArcCsmBase:     0x1FE00000,
		ArcCsmSize:     256 * 1024,
		ResetRegOffset: 0xFFB121B0,
		GridSizeX:      gx,
		GridSizeY:      gy,
		Noc0ToNoc1X:    identity(gx),
		Noc0ToNoc1Y:    noc1Y,

		DefaultTensixCores: tensix,
		DefaultDramCores:   dram,
		DefaultEthCores:    eth,
		DefaultArcCores:    arcCores,
		DefaultPcieCores:   pcie,

		TensixL1Size: 1464 * 1024,
		EthL1Size:    256 * 1024,
		DramBankSize: 3 * 1024 * 1024 * 1024,

		SupportsRemote: true,
		ArcProtocol:    ArcProtocolScratch,

		MaxBlockSizeWithoutSysmem: 1024,
	}
}
