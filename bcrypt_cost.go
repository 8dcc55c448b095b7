//go:build !race

package provision

func passwordHashCost() int {
	return 12
}
