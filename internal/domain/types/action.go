package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionExternalServiceFailed     = "external_service_failed"

	ActionRequestRide    = "request_ride"
	ActionCancelRide     = "cancel_ride"
	ActionFindOrCreate   = "find_or_create_pool"
	ActionJoinPool       = "join_pool"
	ActionCreatePool     = "create_pool"
	ActionLeavePool      = "leave_pool"
	ActionRefreshGeo     = "refresh_pool_geometry"
	ActionTransitionPool = "transition_pool"
	ActionExpirePools    = "expire_pools"
	ActionPriceRide      = "price_ride"
	ActionBackfillPrices = "backfill_prices"
)
