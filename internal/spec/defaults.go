package spec

// Embedded extraction configs used when no external config file is present.
// The incremental variant holds only tables addressable by guid and
// alter-id; the full variant adds snapshot tables that cannot be diffed and
// are rebuilt from scratch on every full sync.

const defaultIncrementalYAML = `
master:
  - name: mst_group
    collection: Group
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: name
        field: Name
        type: text
      - name: parent
        field: Parent
        type: text
      - name: primary_group
        field: _PrimaryGroup
        type: text
      - name: is_revenue
        field: IsRevenue
        type: logical
      - name: is_deemedpositive
        field: IsDeemedPositive
        type: logical
  - name: mst_ledger
    collection: Ledger
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: name
        field: Name
        type: text
      - name: parent
        field: Parent
        type: text
      - name: alias
        field: OnlyAlias
        type: text
      - name: opening_balance
        field: OpeningBalance
        type: amount
      - name: gstn
        field: PartyGSTIN
        type: text
      - name: it_pan
        field: IncomeTaxNumber
        type: text
      - name: email
        field: Email
        type: text
      - name: mailing_address
        field: $$FullListEx:":":Address:$Address
        type: text
  - name: mst_vouchertype
    collection: VoucherType
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: name
        field: Name
        type: text
      - name: parent
        field: Parent
        type: text
      - name: numbering_method
        field: NumberingMethod
        type: text
      - name: is_deemedpositive
        field: IsDeemedPositive
        type: logical
  - name: mst_uom
    collection: Unit
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: name
        field: Name
        type: text
      - name: formalname
        field: OriginalName
        type: text
      - name: is_simple_unit
        field: IsSimpleUnit
        type: logical
  - name: mst_stock_item
    collection: StockItem
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: name
        field: Name
        type: text
      - name: parent
        field: Parent
        type: text
      - name: uom
        field: BaseUnits
        type: text
      - name: opening_balance
        field: OpeningBalance
        type: quantity
      - name: opening_value
        field: OpeningValue
        type: amount
      - name: description
        field: Description
        type: text
transaction:
  - name: trn_voucher
    collection: Voucher
    nature: Primary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: alterid
        field: AlterId
        type: number
      - name: date
        field: Date
        type: date
      - name: voucher_type
        field: VoucherTypeName
        type: text
      - name: voucher_number
        field: VoucherNumber
        type: text
      - name: reference_number
        field: Reference
        type: text
      - name: narration
        field: Narration
        type: text
      - name: party_name
        field: PartyLedgerName
        type: text
      - name: is_invoice
        field: IsInvoice
        type: logical
      - name: is_cancelled
        field: IsCancelled
        type: logical
    fetch:
      - AllLedgerEntries
      - AllInventoryEntries
    cascade_delete:
      - table: trn_accounting
        field: voucher_guid
      - table: trn_inventory
        field: voucher_guid
  - name: trn_accounting
    collection: Voucher.AllLedgerEntries
    nature: Secondary
    fields:
      - name: voucher_guid
        field: ..Guid
        type: text
      - name: ledger
        field: LedgerName
        type: text
      - name: amount
        field: Amount
        type: amount
    filters:
      - NOT $$IsEmpty:$LedgerName
  - name: trn_inventory
    collection: Voucher.AllInventoryEntries
    nature: Secondary
    fields:
      - name: voucher_guid
        field: ..Guid
        type: text
      - name: item
        field: StockItemName
        type: text
      - name: quantity
        field: ActualQty
        type: quantity
      - name: rate
        field: Rate
        type: rate
      - name: amount
        field: Amount
        type: amount
      - name: godown
        field: GodownName
        type: text
    filters:
      - NOT $$IsEmpty:$StockItemName
`

// The closing-stock valuation is a point-in-time snapshot with no alter-id
// to diff against, so only a full rebuild refreshes it.
const defaultFullYAML = defaultIncrementalYAML + `  - name: trn_closingstock_ledger
    collection: StockItem
    nature: Secondary
    fields:
      - name: guid
        field: Guid
        type: text
      - name: stock_item
        field: Name
        type: text
      - name: ledger
        field: Parent
        type: text
      - name: amount
        field: ClosingBalance
        type: amount
`
