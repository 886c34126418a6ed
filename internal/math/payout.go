package math

// PayoutShare computes the winner's slice of the losing pool:
// ⌊winningShares × losingPool ÷ totalVolume⌋, floor division with a wide
// intermediate. Returns 0 when totalVolume is 0.
func PayoutShare(winningShares, losingPool, totalVolume uint64) uint64 {
	if totalVolume == 0 {
		return 0
	}
	return MulDiv(winningShares, losingPool, totalVolume)
}

// Payout computes a winning position's full payout: the original cost plus
// its proportional share of the losing pool, with a checked final add.
func Payout(totalCost, winningShares, losingPool, totalVolume uint64) (uint64, error) {
	share := PayoutShare(winningShares, losingPool, totalVolume)
	return CheckedAdd(totalCost, share)
}
