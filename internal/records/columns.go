package records

// Column names of the backend tables.
const (
	ColID         = "id"
	ColPartNumber = "part_number"
	ColItemName   = "nama_barang"
	ColQuantity   = "qty"
	ColUnitPrice  = "harga_satuan"
	ColLineTotal  = "harga_total"
	ColCustomer   = "customer"
	ColSupplier   = "supplier"
	ColReason     = "reason"
	ColChannel    = "channel"
	ColTempo      = "tempo"
	ColCreatedAt  = "created_at"

	ColDate      = "tanggal"
	ColAmount    = "jumlah"
	ColNote      = "keterangan"
	ColStore     = "toko"
	ColForMonths = "for_months"

	ColStock = "stok"
)
