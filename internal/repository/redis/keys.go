package redis

import "fmt"

// CartKey is the storage key of a table's cart.
func CartKey(tenant string, table int) string {
	return fmt.Sprintf("cart-%s-%d", tenant, table)
}

// HistoryKey is the storage key of a table's order history.
func HistoryKey(tenant string, table int) string {
	return fmt.Sprintf("orders-%s-table-%d", tenant, table)
}

func restaurantKey(slug string) string {
	return "restaurant:" + slug
}
