package arch

// Blackhole grid: 17 columns x 12 rows. Blackhole permutes NOC1 columns
// (not rows, unlike Wormhole) and uses the larger 2MB/4GB TLB classes plus
// the in-memory ARC CSM queue protocol instead of scratch registers.
var blackholeImpl = buildBlackholeImpl()

func buildBlackholeImpl() *Impl {
	const gx, gy = 17, 12

	var tensix []Coord
	for y := 2; y < gy; y++ {
		for x := 1; x < gx-1; x++ {
			tensix = append(tensix, Coord{X: x, Y: y})
		}
	}

	var eth []Coord
	for x := 1; x < gx-1; x++ {
		eth = append(eth, Coord{X: x, Y: 1})
	}

	dram := [][]Coord{
		{{X: 0, Y: 0}, {X: 0, Y: 1}},
		{{X: gx - 1, Y: 0}, {X: gx - 1, Y: 1}},
		{{X: 0, Y: 10}, {X: 0, Y: 11}},
		{{X: gx - 1, Y: 10}, {X: gx - 1, Y: 11}},
	}

	arcCores := []Coord{{X: 8, Y: 0}}
	pcie := []Coord{{X: 0, Y: 3}, {X: gx - 1, Y: 3}}

	// Blackhole swaps NOC1 columns relative to NOC0; rows are identity.
	noc1X := make([]int, gx)
	for x := 0; x < gx; x++ {
		noc1X[x] = gx - 1 - x
	}

	return &Impl{
		Arch: Blackhole,
		TlbSizeClasses: []TlbSizeClass{
			{Size: 2 << 20, Count: 202},         // 2 MB
			{Size: 4 << 30, Count: 8},           // 4 GB
		},
		ArcScratchBase: 0x80030000,
		ArcCsmBase:     0x80000000,
		ArcCsmSize:     512 * 1024,
		ResetRegOffset: 0x80030100,
		GridSizeX:      gx,
		GridSizeY:      gy,
		Noc0ToNoc1X:    noc1X,
		Noc0ToNoc1Y:    identity(gy),

		DefaultTensixCores: tensix,
		DefaultDramCores:   dram,
		DefaultEthCores:    eth,
		DefaultArcCores:    arcCores,
		DefaultPcieCores:   pcie,

		TensixL1Size: 1536 * 1024,
		EthL1Size:    384 * 1024,
		DramBankSize: 4 * 1024 * 1024 * 1024,

		// spec.md §4.7 "Newer ASIC generation": remote access is not
		// implemented; the factory must return UnsupportedOperation.
		SupportsRemote: false,
		ArcProtocol:    ArcProtocolQueue,

		MaxBlockSizeWithoutSysmem: 1024,
	}
}
