package handler

// User-facing messages.
const (
	msgGeneric        = "Something went wrong. Please try again."
	msgInvalidRequest = "Invalid request."

	msgCouponEmpty      = "Please enter a coupon code."
	msgCouponNotFound   = "Invalid coupon code. Please check and try again."
	msgCouponIneligible = "This coupon is expired or has reached its usage limit."
	msgCouponMinimum    = "Minimum order of Rs.%s required to use this coupon."
	msgCouponApplied    = "Coupon '%s' applied successfully!"
	msgCouponRemoved    = "Coupon removed from your cart."

	msgAffiliateApplied    = "Awesome! %s's special discount (%s) has been applied to your cart!"
	msgAffiliateIneligible = "Sorry, this referral link or coupon is expired or has reached its usage limit."
	msgAffiliateNotFound   = "Invalid referral link or coupon code."

	msgOrderPlaced       = "Order placed successfully!"
	msgOrderEmpty        = "Your cart is empty."
	msgOrderQuantity     = "Invalid quantity for one or more products."
	msgOrderDuplicate    = "This order has already been submitted."
	msgAddressNotFound   = "Selected address not found."
	msgProductNotFound   = "One or more products not found."
	msgAddressAdded      = "New delivery address added successfully."
	msgAddressFieldEmpty = "Please fill in %s."
)
