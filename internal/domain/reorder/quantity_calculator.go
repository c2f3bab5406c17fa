package reorder

import "github.com/shopspring/decimal"

// ComputePackages calcula los paquetes a pedir (servicio de dominio, puro).
// Paquetes = ceil((Mínimo - Actual) / TamañoPaquete), al menos 1 si hay déficit; 0 si no lo hay.
// Un tamaño de paquete <= 0 se trata como 1.
func ComputePackages(currentStock, minimumStock decimal.Decimal, packageSize int) int {
	if currentStock.GreaterThanOrEqual(minimumStock) {
		return 0
	}
	if packageSize <= 0 {
		packageSize = 1
	}
	deficit := minimumStock.Sub(currentStock)
	quotient, remainder := deficit.QuoRem(decimal.NewFromInt(int64(packageSize)), 0)
	packages := quotient.IntPart()
	if remainder.IsPositive() {
		packages++
	}
	if packages < 1 {
		packages = 1
	}
	return int(packages)
}
