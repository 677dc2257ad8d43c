package fix

// Tag is a FIX field number
type Tag int

// Standard header and trailer tags
const (
	TagBeginString      Tag = 8
	TagBodyLength       Tag = 9
	TagCheckSum         Tag = 10
	TagMsgSeqNum        Tag = 34
	TagMsgType          Tag = 35
	TagPossDupFlag      Tag = 43
	TagSenderCompID     Tag = 49
	TagSendingTime      Tag = 52
	TagTargetCompID     Tag = 56
	TagOnBehalfOfCompID Tag = 115
	TagDeliverToCompID  Tag = 128
)

// Session-level tags
const (
	TagBeginSeqNo       Tag = 7
	TagEndSeqNo         Tag = 16
	TagNewSeqNo         Tag = 36
	TagRefSeqNum        Tag = 45
	TagText             Tag = 58
	TagEncryptMethod    Tag = 98
	TagHeartBtInt       Tag = 108
	TagTestReqID        Tag = 112
	TagGapFillFlag      Tag = 123
	TagResetSeqNumFlag  Tag = 141
	TagUsername         Tag = 553
	TagPassword         Tag = 554
	TagDefaultApplVerID Tag = 1137
)

// Application tags
const (
	TagAccount                 Tag = 1
	TagAvgPx                   Tag = 6
	TagClOrdID                 Tag = 11
	TagCumQty                  Tag = 14
	TagCurrency                Tag = 15
	TagExecID                  Tag = 17
	TagLastPx                  Tag = 31
	TagLastQty                 Tag = 32
	TagOrderID                 Tag = 37
	TagOrderQty                Tag = 38
	TagOrdStatus               Tag = 39
	TagOrdType                 Tag = 40
	TagOrigClOrdID             Tag = 41
	TagPrice                   Tag = 44
	TagSecurityID              Tag = 48
	TagSide                    Tag = 54
	TagSymbol                  Tag = 55
	TagTimeInForce             Tag = 59
	TagTransactTime            Tag = 60
	TagSettlType               Tag = 63
	TagSecurityDesc            Tag = 107
	TagNoRelatedSym            Tag = 146
	TagExecType                Tag = 150
	TagLeavesQty               Tag = 151
	TagSecurityType            Tag = 167
	TagMDReqID                 Tag = 262
	TagSubscriptionRequestType Tag = 263
	TagMarketDepth             Tag = 264
	TagMDUpdateType            Tag = 265
	TagAggregatedBook          Tag = 266
	TagNoMDEntryTypes          Tag = 267
	TagNoMDEntries             Tag = 268
	TagMDEntryType             Tag = 269
	TagMDEntryPx               Tag = 270
	TagMDEntrySize             Tag = 271
	TagMDUpdateAction          Tag = 279
	TagSecurityReqID           Tag = 320
	TagCxlRejReason            Tag = 102
	TagCxlRejResponseTo        Tag = 434
	TagPartyIDSource           Tag = 447
	TagPartyID                 Tag = 448
	TagPartyRole               Tag = 452
	TagNoPartyIDs              Tag = 453
	TagOrderCapacity           Tag = 528
	TagMassCancelRequestType   Tag = 530
	TagSecurityListRequestType Tag = 559
	TagTradeRequestID          Tag = 568
	TagTradeRequestType        Tag = 569
	TagTrdType                 Tag = 828
	TagTransferReason          Tag = 830
	TagMinPriceIncrement       Tag = 969
	TagMDBookType              Tag = 1021
	TagDisplayQty              Tag = 1138
	TagMarketSegmentID         Tag = 1300
	TagNoTargetPartyIDs        Tag = 1461
	TagTargetPartyID           Tag = 1462
	TagTargetPartyIDSource     Tag = 1463
	TagTargetPartyRole         Tag = 1464
	TagMDEntryOrigin           Tag = 7118
	TagTradeFlag               Tag = 29501
	TagTradeQueryAll           Tag = 30001
)

// Message types (tag 35)
const (
	MsgTypeHeartbeat                 = "0"
	MsgTypeTestRequest               = "1"
	MsgTypeResendRequest             = "2"
	MsgTypeReject                    = "3"
	MsgTypeSequenceReset             = "4"
	MsgTypeLogout                    = "5"
	MsgTypeExecutionReport           = "8"
	MsgTypeOrderCancelReject         = "9"
	MsgTypeLogon                     = "A"
	MsgTypeNewOrderSingle            = "D"
	MsgTypeOrderCancelRequest        = "F"
	MsgTypeOrderCancelReplaceRequest = "G"
	MsgTypeOrderStatusRequest        = "H"
	MsgTypeMarketDataRequest         = "V"
	MsgTypeMarketDataSnapshot        = "W"
	MsgTypeMarketDataIncremental     = "X"
	MsgTypeOrderMassCancelRequest    = "q"
	MsgTypeSecurityListRequest       = "x"
	MsgTypeSecurityList              = "y"
	MsgTypeTradeCaptureReportRequest = "AD"
	MsgTypeTradeCaptureReport        = "AE"
)

// Enumerated values used by the builders
const (
	SideBuy  = "1"
	SideSell = "2"

	OrdTypeLimit = "2"

	SubscriptionSnapshot    = "0"
	SubscriptionSubscribe   = "1"
	SubscriptionUnsubscribe = "2"

	MDEntryTypeBid   = "0"
	MDEntryTypeOffer = "1"

	MDUpdateActionNew    = "0"
	MDUpdateActionChange = "1"
	MDUpdateActionDelete = "2"

	MDBookTypePriceDepth = "2"
	MDBookTypeOrderDepth = "3"

	PartyIDSourceProprietary = "D"
	MassCancelAllOrders      = "7"
	SecurityListAll          = "4"
)
